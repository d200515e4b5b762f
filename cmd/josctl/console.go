package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mcorley/jos/kernel"
)

// stdioConsole backs sys_cputs/sys_cgetc with the process's own
// stdio, the simplest console a hosted build can offer.
type stdioConsole struct {
	in *bufio.Reader
}

func newStdioConsole() *stdioConsole {
	return &stdioConsole{in: bufio.NewReader(os.Stdin)}
}

func (c *stdioConsole) Puts(s string) { fmt.Print(s) }

func (c *stdioConsole) Getc() (byte, bool) {
	b, err := c.in.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

func newIdleMachine(pages int) *kernel.Machine {
	m := kernel.NewMachine(pages, newStdioConsole())
	m.Spawn(0, 0) // env 0: the idle loop sched.Run falls back to
	return m
}
