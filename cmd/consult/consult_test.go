package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFile_Fill(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule.yaml")
	body := `
name: Weekday mornings
description: Consultations before lunch
days: [Wed, mon]
start_time: "9:00 AM"
end_time: "12:30"
priority: 2
breaks:
  - start: "10:30 AM"
    end: "10:45 AM"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	rf, err := loadRuleFile(path)
	require.NoError(t, err)

	form := services.NewBookingRuleForm(nil, nil, nil, nil, nil)
	require.NoError(t, rf.fill(form))

	req := form.Request()
	assert.Equal(t, "Weekday mornings", req.Name)
	assert.Equal(t, []string{"mon", "wed"}, req.Days)
	assert.Equal(t, "09:00", req.StartTime)
	assert.Equal(t, "12:30", req.EndTime)
	assert.Equal(t, 2, req.Priority)
	require.Len(t, req.BreakTimes, 1)
	assert.Equal(t, domain.BreakTimeRequest{StartTime: "10:30", EndTime: "10:45"}, req.BreakTimes[0])
}

func TestLoadRuleFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule.yaml")
	require.NoError(t, os.WriteFile(path, []byte("days: [mon\n"), 0o600))

	_, err := loadRuleFile(path)
	assert.ErrorContains(t, err, "parse rule file")

	_, err = loadRuleFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read rule file")
}

func TestStdinCheckout(t *testing.T) {
	options := domain.CheckoutOptions{Key: "key_1", Amount: 50000, Currency: "INR", OrderID: "order_1"}

	t.Run("payment response", func(t *testing.T) {
		var out bytes.Buffer
		in := strings.NewReader(`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}` + "\n")

		result, err := newStdinCheckout(in, &out).Open(context.Background(), options)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentResult{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}, result)
		assert.Contains(t, out.String(), `"order_id": "order_1"`)
	})

	t.Run("empty line cancels", func(t *testing.T) {
		_, err := newStdinCheckout(strings.NewReader("\n"), &bytes.Buffer{}).Open(context.Background(), options)
		assert.ErrorIs(t, err, domain.ErrPaymentCancelled)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := newStdinCheckout(strings.NewReader("not json\n"), &bytes.Buffer{}).Open(context.Background(), options)
		assert.ErrorContains(t, err, "parse payment response")
	})
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	c := &console{out: &out}
	c.Navigate(domain.RouteLawyerDashboard)
	c.Error("Failed to add note")
	c.Success("Note added")

	assert.Equal(t, "navigate: /lawyer/dashboard\nerror: Failed to add note\nok: Note added\n", out.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run([]string{"bogus"})
	assert.ErrorContains(t, err, `unknown command "bogus"`)
}
