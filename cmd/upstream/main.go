// Command upstream runs one or more demo origin servers for manual
// testing of the load balancer: each instance identifies itself in
// its responses so you can see which backend actually served a given
// request when sending traffic through the proxy.
//
// Usage:
//
//	upstream -addr :9001 -name a
//	upstream -addr :9001,:9002,:9003 -name a,b,c
package main

import (
	"flag"
	"log"
	"strings"
	"sync"

	"github.com/opsbridge/fleetlb/internal/upstream"
)

func main() {
	addrs, names := parseFlags()

	if len(addrs) == 1 {
		if err := upstream.Start(upstream.Config{Name: names[0], ListenAddr: addrs[0]}); err != nil {
			log.Fatalf("upstream %s exited: %v", names[0], err)
		}
		return
	}

	var wg sync.WaitGroup
	for i, addr := range addrs {
		wg.Add(1)
		go func(addr, name string) {
			defer wg.Done()
			log.Printf("starting upstream %q on %s", name, addr)
			if err := upstream.Start(upstream.Config{Name: name, ListenAddr: addr}); err != nil {
				log.Printf("upstream %q on %s exited: %v", name, addr, err)
			}
		}(addr, names[i])
	}
	wg.Wait()
}

func parseFlags() (addrs, names []string) {
	addr := flag.String("addr", ":8000", "comma-separated listen addresses")
	name := flag.String("name", "upstream-1", "comma-separated backend names, aligned with -addr")
	flag.Parse()

	addrs = splitNonEmpty(*addr)
	if len(addrs) == 0 {
		addrs = []string{":8000"}
	}
	names = splitNonEmpty(*name)
	for len(names) < len(addrs) {
		names = append(names, addrs[len(names)])
	}
	return addrs, names
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
