// Command interviewctl is the operator CLI for the interview reconciliation
// service: database maintenance, operator accounts and manual reconciliation.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
