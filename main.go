package main

import "github.com/echohealth/echo_backend/cmd"

func main() {
	cmd.Execute()
}
