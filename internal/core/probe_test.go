package core

import (
	"context"
	"net"
	"testing"
	"time"

	ncerr "wsbridge/internal/errors"
	"wsbridge/internal/transport"
	"wsbridge/util"
)

func TestProbe_Open(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	res := Probe(context.Background(), &transport.TCPDialer{}, ln.Addr().String(), time.Second)
	if !res.Open || res.Err != nil {
		t.Fatalf("Probe = %+v, want open", res)
	}
}

func TestProbe_Closed(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	addr := util.FormatAddr("127.0.0.1", port)

	res := Probe(context.Background(), &transport.TCPDialer{}, addr, time.Second)
	if res.Open {
		t.Fatal("closed port reported open")
	}
	var netErr *ncerr.NetworkError
	if !ncerr.As(res.Err, &netErr) || netErr.Op != "probe" || netErr.Addr != addr {
		t.Errorf("Err = %v, want probe NetworkError for %s", res.Err, addr)
	}
}
