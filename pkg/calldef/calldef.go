package calldef

import "fmt"

// CallDef calls an operation indirectly: caller arguments of type A become
// parameters P, and the decoded response R becomes the result T.
type CallDef[A any, P ParamSource, R any, T any] struct {
	Operation        string
	Descriptor       *Descriptor
	ArgsToParams     func(A) P
	ResponseToResult func(R) T
}

// Validate checks that every piece of the definition is set.
func (c *CallDef[A, P, R, T]) Validate() error {
	if c.Descriptor == nil {
		return fmt.Errorf("calldef:calldef - %s: descriptor is required", c.Operation)
	}
	if c.ArgsToParams == nil || c.ResponseToResult == nil {
		return fmt.Errorf("calldef:calldef - %s: conversion functions are required", c.Operation)
	}
	return c.Descriptor.Validate()
}
