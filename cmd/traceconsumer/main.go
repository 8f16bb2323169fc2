// Command traceconsumer listens on a Unix domain socket, decodes the wire
// framing package event defines, and prints decoded records. It exists to
// give the wire protocol a reachable, testable far end; the real consumer
// is explicitly out of scope for this repository.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/novafacing/cannonball/event"
	"github.com/novafacing/cannonball/utils"
)

func main() {
	sockPath := flag.String("sock_path", "/dev/shm/cannonball.sock", "socket to listen on")
	flag.Parse()

	os.Remove(*sockPath)
	ln, err := net.Listen("unix", *sockPath)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	fmt.Fprintf(os.Stderr, "listening on %s\n", *sockPath)

	quit := utils.GetQuitChannel()
	go func() {
		sig := <-quit
		fmt.Fprintf(os.Stderr, "received %v, closing listener\n", sig)
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}
}

func handle(conn net.Conn) {
	defer conn.Close()
	for {
		rec, err := event.DecodeReader(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintf(os.Stderr, "decode: %v\n", err)
			}
			return
		}
		print(rec)
	}
}

func print(rec event.Record) {
	switch rec.Kind {
	case event.KindLoad:
		fmt.Printf("Load min=0x%x max=0x%x entry=0x%x prot=%d\n", rec.Load.MinAddr, rec.Load.MaxAddr, rec.Load.EntryAddr, rec.Load.Protection)
	case event.KindPc:
		fmt.Printf("Pc addr=0x%x branch=%v\n", rec.Pc.Addr, rec.Pc.Branch)
	case event.KindInstr:
		fmt.Printf("Instr addr=0x%x opcode=% x\n", rec.Instr.Addr, rec.Instr.Opcode[:rec.Instr.OpcodeSize])
	case event.KindMemAccess:
		fmt.Printf("MemAccess pc=0x%x vaddr=0x%x write=%v\n", rec.MemAccess.Addr, rec.MemAccess.VAddr, rec.MemAccess.IsWrite)
	case event.KindSyscall:
		fmt.Printf("Syscall num=%d rv=%d args=%v\n", rec.Syscall.Num, rec.Syscall.Rv, rec.Syscall.Args)
	}
}
