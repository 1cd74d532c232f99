// Package ui renders git progress for operators watching an interactive sync.
//
// Progress lines cover the network operations of a mirror (fetch and push) and
// are printed next to the structured log stream, which keeps full detail.
package ui
