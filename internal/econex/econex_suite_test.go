package econex_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEconex(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EcoNex Suite")
}
