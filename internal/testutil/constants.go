// Package testutil provides common constants, mocks and builders for tests
package testutil

import "fmt"

const (
	// TestDimension is the embedding length used by most tests
	TestDimension = 3

	// TestBatchSize is the default batch size for test operations
	TestBatchSize = 2
)

// TableName formats the i-th generated table name
func TableName(i int) string {
	return fmt.Sprintf("table_%03d", i)
}
