// Package userstore holds UserStore implementations for the authcore
// Engine: postgres for production and memory for tests and tooling.
package userstore
