package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"forwardlock/internal/amount"
	"forwardlock/internal/model"
)

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	return s
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func units(a model.Amount, symbol string) string {
	text := amount.Group(amount.Format(a))
	if symbol == "" {
		return text
	}
	return text + " " + symbol
}

func statusString(s model.TxStatus) string {
	switch s {
	case model.TxConfirmed:
		return color.GreenString(s.String())
	case model.TxFailed:
		return color.RedString(s.String())
	default:
		return color.YellowString(s.String())
	}
}

func printRecord(rec model.TransactionRecord, symbol string) {
	if rec.Hash != (common.Hash{}) {
		fmt.Printf("  Transaction:  %s\n", color.CyanString(rec.Hash.Hex()))
	}
	fmt.Printf("  Status:       %s\n", statusString(rec.Status))
	if rec.BlockNumber != 0 {
		fmt.Printf("  Block:        %d\n", rec.BlockNumber)
	}
	if rec.RealizedOutput != nil {
		fmt.Printf("  Received:     %s\n", color.GreenString(units(*rec.RealizedOutput, symbol)))
	}
	if rec.ErrorDetail != "" {
		fmt.Printf("  Error:        %s\n", color.RedString(rec.ErrorDetail))
	}
}
