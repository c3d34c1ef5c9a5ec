// Package task defines the task record carried through remote execution and
// synthesis, and the status state machine that guards its transitions.
package task
