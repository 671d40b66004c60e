package main

import "github.com/opera-sds/granule-audit/internal/cmd"

func main() {
	cmd.Execute()
}
