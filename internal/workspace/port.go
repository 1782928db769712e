package workspace

import (
	"fmt"
	"net"
)

// ReservePort probes base, base+1, ... base+attempts-1 and returns the
// first port that accepts a loopback listener. Trials run sequentially so
// probing is race-free; if concurrent trials are ever introduced this is
// the single place a reservation table would replace the probe loop.
func ReservePort(base, attempts int) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	for offset := 0; offset < attempts; offset++ {
		port := base + offset
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", base, base+attempts-1)
}
