package cpu

import "testing"

func TestIsIntel(t *testing.T) {
	defer func() {
		cpuidFn = ID
	}()

	specs := []struct {
		eax, ebx, ecx, edx uint32
		exp                bool
	}{
		// CPUID output from an Intel CPU
		{0xd, 0x756e6547, 0x6c65746e, 0x49656e69, true},
		// CPUID output from an AMD Athlon CPU
		{0x1, 0x68747541, 0x444d4163, 0x69746e65, false},
	}

	for specIndex, spec := range specs {
		cpuidFn = func(_ uint32) (uint32, uint32, uint32, uint32) {
			return spec.eax, spec.ebx, spec.ecx, spec.edx
		}

		if got := IsIntel(); got != spec.exp {
			t.Errorf("[spec %d] expected IsIntel to return %t; got %t", specIndex, spec.exp, got)
		}
	}
}

func TestFeatureDetection(t *testing.T) {
	defer func() {
		cpuidFn = ID
	}()

	specs := []struct {
		ecx, edx  uint32
		expAPIC   bool
		expX2APIC bool
	}{
		{0, 0, false, false},
		{0, featureEDXAPIC, true, false},
		{featureECXX2APIC, featureEDXAPIC, true, true},
		{featureECXX2APIC, 0, false, true},
	}

	for specIndex, spec := range specs {
		var gotLeaf uint32
		cpuidFn = func(leaf uint32) (uint32, uint32, uint32, uint32) {
			gotLeaf = leaf
			return 0, 0, spec.ecx, spec.edx
		}

		if got := HasAPIC(); got != spec.expAPIC {
			t.Errorf("[spec %d] expected HasAPIC to return %t; got %t", specIndex, spec.expAPIC, got)
		}

		if got := HasX2APIC(); got != spec.expX2APIC {
			t.Errorf("[spec %d] expected HasX2APIC to return %t; got %t", specIndex, spec.expX2APIC, got)
		}

		if gotLeaf != 1 {
			t.Errorf("[spec %d] expected feature detection to query CPUID leaf 1; got %d", specIndex, gotLeaf)
		}
	}
}

func TestInterruptsEnabled(t *testing.T) {
	if InterruptsEnabled(0x2) {
		t.Fatal("expected IF to be reported as clear")
	}

	if !InterruptsEnabled(0x202) {
		t.Fatal("expected IF to be reported as set")
	}
}
