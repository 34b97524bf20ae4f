// Package walletprovider implements the two account-server concerns
// the core relies on (§4.12): the wallet-certificate JWT binding a
// device key to a PIN-key HMAC, and the PIN attempt policy evaluator.
//
// Grounded on original_source/wallet_core/wallet_provider/service/src/
// pin_policy.rs (PinPolicy, a direct line-by-line port) and
// wallet_certificate.rs (new_wallet_certificate / verify_wallet_certificate_
// public_keys), expressed in teacher pkg/tokenstatuslist/jwt.go's
// claims-struct + sign/parse style. Neither dc4eu-vc nor the rest of
// the pack has an account-server equivalent.
package walletprovider

import (
	"fmt"
	"time"
)

// ErrInconsistentAttemptState is returned by Evaluate when attempts
// and lastFailedPin are not consistent with either a first attempt
// (attempts == 1, lastFailedPin == nil) or a subsequent one (attempts
// > 1, lastFailedPin set) — §4.12's totality guarantee only covers
// this domain, matching the teacher's own precondition.
var ErrInconsistentAttemptState = fmt.Errorf("walletprovider: inconsistent pin attempt state")

// EvaluationKind is the PIN-policy verdict kind of §4.12: exactly one
// is returned for every (attempts, last_failed_pin, now) triple.
type EvaluationKind int

const (
	EvaluationFailed EvaluationKind = iota
	EvaluationTimeout
	EvaluationInTimeout
	EvaluationBlockedPermanently
)

// Evaluation is the PIN-policy verdict. AttemptsLeft/IsFinalAttempt
// are only meaningful when Kind is EvaluationFailed; Timeout is only
// meaningful when Kind is EvaluationTimeout or EvaluationInTimeout.
type Evaluation struct {
	Kind           EvaluationKind
	AttemptsLeft   int
	IsFinalAttempt bool
	Timeout        time.Duration
}

// PinPolicy is the table-driven PIN attempt policy of §4.12: rounds
// rounds of attemptsPerRound attempts each, with an escalating timeout
// after every round but the last (after the last round the account is
// blocked).
type PinPolicy struct {
	rounds           int
	attemptsPerRound int
	timeouts         []time.Duration
}

// NewPinPolicy builds a policy. timeouts must carry exactly rounds-1
// entries, one for every round but the last.
func NewPinPolicy(rounds, attemptsPerRound int, timeouts []time.Duration) (*PinPolicy, error) {
	if len(timeouts) != rounds-1 {
		return nil, fmt.Errorf("walletprovider: expected %d timeouts, got %d", rounds-1, len(timeouts))
	}
	return &PinPolicy{rounds: rounds, attemptsPerRound: attemptsPerRound, timeouts: timeouts}, nil
}

func (p *PinPolicy) currentRound(attempts int) int {
	q, r := attempts/p.attemptsPerRound, attempts%p.attemptsPerRound
	switch {
	case q == 0:
		return 1
	case r == 0:
		return q
	default:
		return q + 1
	}
}

func (p *PinPolicy) isFinalAttempt(attempts int) bool {
	return p.attemptsLeft(attempts) == 1 && p.currentRound(attempts) == p.rounds
}

func (p *PinPolicy) isBlocked(attempts int) bool {
	return attempts >= p.rounds*p.attemptsPerRound
}

func (p *PinPolicy) attemptsLeft(attempts int) int {
	if p.rounds == 1 {
		return p.attemptsPerRound - attempts
	}
	x := attempts % p.rounds
	if x == 0 {
		if p.isBlocked(attempts) {
			return 0
		}
		return p.attemptsPerRound
	}
	return p.attemptsPerRound - x
}

func (p *PinPolicy) currentTimeout(attempts int) (time.Duration, bool) {
	i := attempts / p.attemptsPerRound
	if p.isBlocked(attempts) || attempts <= 1 || i <= 0 {
		return 0, false
	}
	idx := i - 1
	if idx >= len(p.timeouts) {
		return 0, false
	}
	return p.timeouts[idx], true
}

// Evaluate returns the verdict for attempts total failed attempts, the
// time of the previous failed attempt (nil on the very first attempt),
// and the current time. attempts must be at least 1, and lastFailedPin
// must be nil iff attempts == 1.
func (p *PinPolicy) Evaluate(attempts int, lastFailedPin *time.Time, now time.Time) (Evaluation, error) {
	isFirstAttempt := lastFailedPin == nil && attempts == 1
	hasFailedEarlier := lastFailedPin != nil && attempts > 1
	if !isFirstAttempt && !hasFailedEarlier {
		return Evaluation{}, ErrInconsistentAttemptState
	}

	if p.isBlocked(attempts) {
		return Evaluation{Kind: EvaluationBlockedPermanently}, nil
	}

	if lastFailedPin != nil {
		if timeout, ok := p.currentTimeout(attempts); ok {
			alreadyInTimeout := lastFailedPin.Add(timeout).After(now)
			attemptsLeft := p.attemptsLeft(attempts)
			endOfRound := p.attemptsPerRound == attemptsLeft
			startOfNextRound := p.attemptsPerRound == attemptsLeft+1

			if endOfRound {
				return Evaluation{Kind: EvaluationTimeout, Timeout: timeout}, nil
			}
			if alreadyInTimeout && startOfNextRound {
				return Evaluation{Kind: EvaluationInTimeout, Timeout: timeout}, nil
			}
		}
	}

	return Evaluation{
		Kind:           EvaluationFailed,
		AttemptsLeft:   p.attemptsLeft(attempts),
		IsFinalAttempt: p.isFinalAttempt(attempts),
	}, nil
}
