package core

import "fmt"

// ChallengeTemplateVersion identifies the wording of the message users
// are asked to sign. Old unsigned messages become unverifiable across
// a template change, so any edit to challengeTemplate must bump this.
const ChallengeTemplateVersion = 1

const challengeTemplate = "Please sign this message to authenticate with DeCleanup Network\n\nAddress: %s\nNonce: %s"

// ChallengeMessage builds the exact message a wallet must sign for the
// given address and nonce. The verifier reconstructs it from the stored
// nonce, so both sides always agree on the signed bytes.
func ChallengeMessage(address, nonce string) string {
	return fmt.Sprintf(challengeTemplate, address, nonce)
}
