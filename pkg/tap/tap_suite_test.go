// ABOUTME: Ginkgo suite entry point for the tap package
// ABOUTME: Runs the registry tests under go test
package tap_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestTap(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tap Suite")
}
