package server

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// CPUInfo describes the host the decompositions run on. It is logged at
// startup and reported by /healthz.
type CPUInfo struct {
	Brand        string   `json:"brand"`
	Arch         string   `json:"arch"`
	LogicalCores int      `json:"logical_cores"`
	AVX2         bool     `json:"avx2"`
	FMA          bool     `json:"fma"`
	Features     []string `json:"features,omitempty"`
}

// DetectCPU reports the detected CPU.
func DetectCPU() CPUInfo {
	cores := cpuid.CPU.LogicalCores
	if cores == 0 {
		cores = runtime.NumCPU()
	}
	return CPUInfo{
		Brand:        cpuid.CPU.BrandName,
		Arch:         runtime.GOARCH,
		LogicalCores: cores,
		AVX2:         cpuid.CPU.Supports(cpuid.AVX2),
		FMA:          cpuid.CPU.Supports(cpuid.FMA3),
		Features:     cpuid.CPU.FeatureSet(),
	}
}
