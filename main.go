package main

import "github.com/samogod/mentorloop/cmd"

func main() {
	cmd.Execute()
}
