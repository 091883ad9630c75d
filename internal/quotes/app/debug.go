package app

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// debugServers serve pprof and/or a standalone /metrics; empty when both
// addresses are empty. When they share an address one listener serves both.
func debugServers(metricsAddr, pprofAddr string) []*http.Server {
	muxes := map[string]*http.ServeMux{}
	get := func(addr string) *http.ServeMux {
		if m, ok := muxes[addr]; ok {
			return m
		}
		m := http.NewServeMux()
		muxes[addr] = m
		return m
	}

	if pprofAddr != "" {
		runtime.SetMutexProfileFraction(10)
		runtime.SetBlockProfileRate(10000)

		mux := get(pprofAddr)
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	if metricsAddr != "" {
		get(metricsAddr).Handle("/metrics", promhttp.Handler())
	}

	out := make([]*http.Server, 0, len(muxes))
	for addr, mux := range muxes {
		out = append(out, &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		})
	}
	return out
}
