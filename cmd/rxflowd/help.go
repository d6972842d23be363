package main

import (
	"fmt"

	"github.com/fatih/color"
)

const helpString = `Receive (or send) SRTP media over UDP

Usage: rxflowd [OPTION]...

Keys (hex encoded):
  -k, --key=HEX          Local SRTP master key, 16 bytes
  -s, --salt=HEX         Local SRTP master salt, 14 bytes
      --remote-key=HEX   Remote master key (default: same as --key)
      --remote-salt=HEX  Remote master salt (default: same as --salt)
      --insecure         Plain RTP/RTCP, no keys
      --null-cipher      Authenticate without encrypting

Receive:
  -l, --listen=ADDR      UDP address to receive on (default: :5004)
  -b, --buffer-size=NUM  Reception buffer, in bytes (default: 4194304)
      --priority=NUM     Nice value for the receiver thread (default: 0)
  -t, --payload-type=PT  Only accept these RTP payload types (repeatable)
  -r, --relay=ADDR       Serve received frames over WebSocket on ADDR

Send:
      --send=ADDR        Send protected test media to ADDR instead
  -n, --count=NUM        Number of RTP packets to send (default: 500)
      --interval=DUR     Delay between packets (default: 20ms)
      --dscp=NUM         DSCP value for outgoing packets (default: 46)

Miscellaneous:
      --log=DIRECTIVES   Logging levels, e.g. "debug,flow=trace"
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//                __  _
	//  _ __ __  __  / _|| |  ___  __      __
	// | '__|\ \/ / | |_ | | / _ \ \ \ /\ / /
	// | |    >  <  |  _|| || (_) | \ V  V /
	// |_|   /_/\_\ |_|  |_| \___/   \_/\_/

	r.Printf("       ")
	y.Printf("     ")
	b.Printf("  __ ")
	y.Printf(" _ ")
	r.Println("                ")

	r.Printf(" _ __ ")
	y.Printf("__  __ ")
	b.Printf(" / _|")
	y.Printf("| |")
	r.Println("  ___  __      __")

	r.Printf("| '__|")
	y.Printf("\\ \\/ / ")
	b.Printf("| |_ ")
	y.Printf("| |")
	r.Println(" / _ \\ \\ \\ /\\ / /")

	r.Printf("| |   ")
	y.Printf(" >  <  ")
	b.Printf("|  _|")
	y.Printf("| |")
	r.Println("| (_) | \\ V  V / ")

	r.Printf("|_|   ")
	y.Printf("/_/\\_\\ ")
	b.Printf("|_|  ")
	y.Printf("|_|")
	r.Println(" \\___/   \\_/\\_/  ")

	fmt.Println(helpString)
}

// GitRevisionId is populated via -ldflags="-X main.GitRevisionId=...".
var GitRevisionId = "dev"

func version() {
	fmt.Println("rxflowd", GitRevisionId)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
}
