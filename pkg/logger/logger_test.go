package logger_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("NewLoggerWithWriters", func() {
		It("writes info-level messages by default", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf)
			l.Info("hello", zap.String("key", "value"))

			Expect(buf.String()).To(ContainSubstring("hello"))
			Expect(buf.String()).To(ContainSubstring("key"))
			Expect(buf.String()).To(ContainSubstring("value"))
		})

		It("filters debug messages when debug is disabled", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf)
			l.Debug("hidden")

			Expect(buf.String()).To(BeEmpty())
		})

		It("emits debug messages when debug is enabled", func() {
			var buf bytes.Buffer
			l := logger.NewLoggerWithWriters(true, &buf)
			l.Debug("debug msg")

			Expect(buf.String()).To(ContainSubstring("debug msg"))
		})

		It("fans out to multiple writers", func() {
			var buf1, buf2 bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf1, &buf2)
			l.Info("multi")

			Expect(buf1.String()).To(ContainSubstring("multi"))
			Expect(buf2.String()).To(ContainSubstring("multi"))
		})

		It("defaults to stdout when no writers are given", func() {
			l := logger.NewLoggerWithWriters(false)
			Expect(l).NotTo(BeNil())
		})
	})

	Describe("NewLogger", func() {
		It("returns a usable logger at info level", func() {
			l := logger.NewLogger(false)
			Expect(l).NotTo(BeNil())
		})

		It("returns a usable logger at debug level", func() {
			l := logger.NewLogger(true)
			Expect(l).NotTo(BeNil())
		})
	})
})
