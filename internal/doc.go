// Package internal holds secret and code generation shared by the engine
// and its stores. Nothing here is part of the public API.
package internal
