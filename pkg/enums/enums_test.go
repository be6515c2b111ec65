package enums

import "testing"

func TestBookingStatusTerminal(t *testing.T) {
	terminal := map[BookingStatus]bool{
		BookingStatusBooked:    false,
		BookingStatusActive:    false,
		BookingStatusCompleted: true,
		BookingStatusCancelled: true,
		BookingStatusNoShow:    true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", status, want, got)
		}
	}
}

func TestParseConnectorType(t *testing.T) {
	got, err := ParseConnectorType("ccs")
	if err != nil || got != ConnectorCCS {
		t.Fatalf("expected ccs, got %q err=%v", got, err)
	}
	if _, err := ParseConnectorType("CCS2"); err == nil {
		t.Fatal("expected unknown connector to fail")
	}
}

func TestChargerStatusOperatorSettable(t *testing.T) {
	if ChargerStatusOccupied.IsOperatorSettable() {
		t.Fatal("occupied must only be set by a reservation")
	}
	for _, status := range []ChargerStatus{ChargerStatusAvailable, ChargerStatusOutOfOrder, ChargerStatusMaintenance} {
		if !status.IsOperatorSettable() {
			t.Fatalf("%s should be operator settable", status)
		}
	}
	if ChargerStatus("broken").IsOperatorSettable() {
		t.Fatal("unknown status must not be settable")
	}
}

func TestUserRoleCanOperateStations(t *testing.T) {
	if UserRoleDriver.CanOperateStations() {
		t.Fatal("drivers cannot operate stations")
	}
	if !UserRoleOperator.CanOperateStations() || !UserRoleAdmin.CanOperateStations() {
		t.Fatal("operators and admins operate stations")
	}
}

func TestStationStatusAcceptsBookings(t *testing.T) {
	if !StationStatusActive.AcceptsBookings() {
		t.Fatal("active stations accept bookings")
	}
	if StationStatusConstruction.AcceptsBookings() {
		t.Fatal("stations under construction do not accept bookings")
	}
}

func TestParseOneOf(t *testing.T) {
	method, err := ParsePaymentMethod("upi")
	if err != nil || method != PaymentMethodUPI {
		t.Fatalf("expected upi, got %q err=%v", method, err)
	}
	if _, err := ParseCurrency("inr"); err == nil || err.Error() != `invalid currency "inr"` {
		t.Fatalf("currency codes are case sensitive, got %v", err)
	}
	if PaymentStatus("settled").IsValid() {
		t.Fatal("unknown payment status must be invalid")
	}
	if !PaymentStatusRefunded.IsValid() {
		t.Fatal("refunded is a payment status")
	}
}
