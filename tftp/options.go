package tftp

import (
	"strconv"
	"time"
)

const (
	MinBlksize     = 8
	MaxBlksize     = 65464
	DefaultBlksize = 512

	DefaultTimeout = 5 * time.Second
)

// NegotiatedOptions holds the result of matching a client's requested RFC
// 2347 options against the server's limits, plus the subset that must be
// echoed back in an OACK.
type NegotiatedOptions struct {
	Blksize int
	Timeout time.Duration
	Tsize   *int64 // non-nil if the client requested tsize

	Echo Options
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Negotiate inspects the options carried by an RRQ and derives the
// parameters a transfer should use, along with the options that must be
// echoed in an OACK. fileSize is used to answer a requested tsize; pass a
// negative value if it couldn't be determined, and tsize is left out of
// the OACK even if the client asked for it.
func Negotiate(opts Options, fileSize int64) NegotiatedOptions {
	n := NegotiatedOptions{
		Blksize: DefaultBlksize,
		Timeout: DefaultTimeout,
	}

	if raw, ok := opts.Get("blksize"); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			n.Blksize = clampInt(v, MinBlksize, MaxBlksize)
			n.Echo = append(n.Echo, Option{Name: "blksize", Value: strconv.Itoa(n.Blksize)})
		}
	}

	timeoutSet := false
	if raw, ok := opts.Get("timeout"); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			secs := clampInt(v, 1, 255)
			n.Timeout = time.Duration(secs) * time.Second
			n.Echo = append(n.Echo, Option{Name: "timeout", Value: strconv.Itoa(secs)})
			timeoutSet = true
		}
	}
	// utimeout supersedes timeout if both are present.
	if raw, ok := opts.Get("utimeout"); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			micros := clampInt(v, 10000, 255000000)
			n.Timeout = time.Duration(micros) * time.Microsecond
			if timeoutSet {
				for i := range n.Echo {
					if equalFold(n.Echo[i].Name, "timeout") {
						n.Echo = append(n.Echo[:i], n.Echo[i+1:]...)
						break
					}
				}
			}
			n.Echo = append(n.Echo, Option{Name: "utimeout", Value: strconv.Itoa(micros)})
		}
	}

	if _, ok := opts.Get("tsize"); ok && fileSize >= 0 {
		n.Tsize = &fileSize
		n.Echo = append(n.Echo, Option{Name: "tsize", Value: strconv.FormatInt(fileSize, 10)})
	}

	return n
}
