// Package processor enriches resolved repositories with source metadata and
// the state of their destination counterparts.
package processor
