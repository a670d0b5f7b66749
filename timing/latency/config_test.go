package latency_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vproclab/vvsim/timing/latency"
)

var _ = Describe("Config", func() {
	It("should validate the defaults", func() {
		Expect(latency.DefaultConfig().Validate()).To(Succeed())
	})

	It("should keep defaults for fields a file leaves out", func() {
		path := filepath.Join(GinkgoT().TempDir(), "timing.json")
		Expect(os.WriteFile(path, []byte(`{"mem_latency": 9}`), 0644)).To(Succeed())

		config, err := latency.LoadConfig(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(config.MemLatency).To(Equal(9))
		Expect(config.VLenBits).To(Equal(128))
	})

	It("should round-trip through save and load", func() {
		path := filepath.Join(GinkgoT().TempDir(), "timing.json")
		config := latency.DefaultConfig()
		config.StageBuffer = true
		config.VLenBits = 256
		Expect(config.SaveConfig(path)).To(Succeed())

		loaded, err := latency.LoadConfig(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded).To(Equal(config))
	})

	It("should reject out-of-range settings", func() {
		config := latency.DefaultConfig()
		config.VRegWriteLatency = 0
		Expect(config.Validate()).ToNot(Succeed())

		config = latency.DefaultConfig()
		config.MemWidthBits = 48
		Expect(config.Validate()).ToNot(Succeed())

		config = latency.DefaultConfig()
		config.VLenBits = 100
		Expect(config.Validate()).ToNot(Succeed())
	})

	It("should clone without sharing", func() {
		config := latency.DefaultConfig()
		clone := config.Clone()
		clone.MemLatency = 99
		Expect(config.MemLatency).To(Equal(4))
	})
})
