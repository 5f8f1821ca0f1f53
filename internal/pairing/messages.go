package pairing

import "fmt"

// User-facing message templates. Channels relay these verbatim; help text and
// command usage belong to the front ends.

func msgConnecting() string {
	return "Connecting to WhatsApp..."
}

func msgCodeIssued(code string) string {
	return fmt.Sprintf("Your pairing code: %s\n\nOn your phone: WhatsApp → Settings → Linked Devices → Link a Device → Link with phone number instead.", code)
}

func msgQRCaption() string {
	return "Scan within a minute: WhatsApp → Settings → Linked Devices → Link a Device."
}

func msgArtifactStillValid() string {
	return "Still waiting — use the code or QR you already received."
}

func msgArtifactExpired() string {
	return "The previous code or QR has likely expired. If a fresh QR doesn't appear shortly, send /cancel and start again."
}

func msgSessionReady(id string) string {
	return fmt.Sprintf("Linked! Your session ID:\n\n%s\n\nKeep it private — anyone holding it can use the session.", id)
}

func msgCredentialsMissing() string {
	return "Pairing failed: credentials were not saved correctly. Please start again."
}

func msgPublishFailed(err error) string {
	return fmt.Sprintf("Pairing succeeded but uploading credentials failed: %v\n\nThe session was closed, please start again.", err)
}

func msgCodeRequestFailed(err error) string {
	return fmt.Sprintf("Could not request a pairing code: %v\n\nThe session was closed. Check the number and start again.", err)
}

func msgPermanentClose(reason CloseReason) string {
	return fmt.Sprintf("Connection closed for good (%s). Everything was cleaned up — start again when ready.", reason)
}

func msgTransientClose() string {
	return "Connection dropped, waiting for it to recover. Send /resume if nothing happens, or /cancel to stop."
}

func msgCancelled() string {
	return "Pairing cancelled. Everything was cleaned up."
}
