package main

import "github.com/fieldcrew/crewclock/cmd"

func main() {
	cmd.Execute()
}
