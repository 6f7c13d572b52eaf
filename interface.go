package script_runner

import (
	"context"
)

// Program is source code compiled by an Engine.
// A Program may be run by any initialized engine of the same type and environment.
type Program interface {
	// Type returns the type of the engine that compiled the program
	Type() Type
	// Source returns the original snippet
	Source() string
}

// Engine Define the interface for script engine backends
type Engine interface {
	// GetType get the type of the script engine
	GetType() Type

	//////////////////////////////////////////////////////////////////////////////////////////
	// Lifecycle Management
	//////////////////////////////////////////////////////////////////////////////////////////

	// Init initialize the script engine with a fixed environment.
	// Options and capabilities are bound once and never change afterwards.
	Init(ctx context.Context, env *Environment) error
	// Close the script engine and release resources
	Close() error
	// IsInitialized check if the engine is initialized
	IsInitialized() bool

	//////////////////////////////////////////////////////////////////////////////////////////
	// Compilation
	//////////////////////////////////////////////////////////////////////////////////////////

	// Compile compile a snippet against the environment.
	// Failures are returned as *CompileError.
	Compile(ctx context.Context, source string) (Program, error)

	//////////////////////////////////////////////////////////////////////////////////////////
	// Script Execution
	//////////////////////////////////////////////////////////////////////////////////////////

	// Run evaluate a compiled program
	Run(ctx context.Context, program Program) (Value, error)
	// ExecuteString compile and evaluate a snippet
	ExecuteString(ctx context.Context, source string) (Value, error)

	//////////////////////////////////////////////////////////////////////////////////////////
	// Error Handling
	//////////////////////////////////////////////////////////////////////////////////////////

	// GetLastError get the last error occurred in the engine
	GetLastError() error
	// ClearError clear the last error
	ClearError()
}
