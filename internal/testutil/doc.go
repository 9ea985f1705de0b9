// Package testutil provides recorders and fixtures shared by package tests.
package testutil
