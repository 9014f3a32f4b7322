package discovery

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestHashPassphraseMatchesSHA256(t *testing.T) {
	passphrase := "correct-horse-battery"
	expectedSum := sha256.Sum256([]byte(passphrase))
	expected := fmt.Sprintf("%x", expectedSum)

	result := hashPassphrase(passphrase)
	if result != expected {
		t.Errorf("hashPassphrase(%q) = %q, want %q", passphrase, result, expected)
	}
}

func TestAdvertiseAndFindSender(t *testing.T) {
	// This test integrates both Advertise and FindSender on the loopback
	// interface. mDNS can be flaky in CI/container environments without
	// multicast support; we try our best to run it locally.

	port := 9999
	passphrase := "unit-test-passphrase-discovery"

	stop, err := Advertise(port, passphrase, Offer{FileName: "report.pdf", FileSize: 5000})
	if err != nil {
		t.Fatalf("Failed to start advertising: %v", err)
	}
	defer stop()

	time.Sleep(500 * time.Millisecond)

	found, err := FindSender(passphrase, 2*time.Second)
	if err != nil {
		resolver, _ := zeroconf.NewResolver(nil)
		entries := make(chan *zeroconf.ServiceEntry)
		go func() {
			resolver.Browse(context.Background(), ServiceType, "local.", entries)
		}()
		select {
		case e := <-entries:
			t.Logf("Found unrelated service: %s %v", e.Instance, e.Text)
		case <-time.After(1 * time.Second):
			t.Log("No services found at all")
		}

		t.Fatalf("FindSender failed: %v", err)
	}

	expectedSuffix := fmt.Sprintf(":%d", port)
	if len(found.Addr) <= len(expectedSuffix) || found.Addr[len(found.Addr)-len(expectedSuffix):] != expectedSuffix {
		t.Errorf("Found address %q, expected port %d", found.Addr, port)
	}
	if found.Offer.FileName != "report.pdf" {
		t.Errorf("Offer.FileName = %q, want report.pdf", found.Offer.FileName)
	}
	if found.Offer.FileSize != 5000 {
		t.Errorf("Offer.FileSize = %d, want 5000", found.Offer.FileSize)
	}
}

func TestFindSenderNotFound(t *testing.T) {
	passphrase := "non-existent-ghost-passphrase"

	start := time.Now()
	_, err := FindSender(passphrase, 500*time.Millisecond)
	duration := time.Since(start)

	if err == nil {
		t.Error("Expected error (timeout), got success")
	}

	if duration < 500*time.Millisecond {
		t.Error("Returned too early, didn't wait for timeout")
	}
}
