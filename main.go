/*
Copyright © 2026 JACOB ARTHURS
*/
package main

import "github.com/jacobarthurs/pginsights/cmd"

func main() {
	cmd.Execute()
}
