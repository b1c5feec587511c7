package main

import "github.com/nixxel-company-limited/escpos-receipt-server/cli"

func main() {
	cli.Execute()
}
