package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/identity"
	"github.com/MrEthical07/authcore/internal/rate"
)

// federatedLogin is the state threaded through the federated login chain.
type federatedLogin struct {
	accessToken string
	attempt     *rate.Attempt
	profile     FederatedProfile
	account     *identity.Account
	pair        TokenPair
}

// federatedStep is one interceptor of the federated login chain. A step
// that returns an error stops the chain.
type federatedStep struct {
	name string
	run  func(context.Context, *federatedLogin) error
}

// federatedChain returns the interceptors in execution order:
//
//  1. throttle: the login attempt policy rejects before the provider is
//     contacted.
//  2. assert: the provider validates the token; a failed assertion is
//     recorded against the caller, a valid one resets the counter.
//  3. resolve: the account is found or created from the asserted profile.
//  4. issue: a session is minted for the request fingerprint.
func (e *Engine) federatedChain() []federatedStep {
	return []federatedStep{
		{name: "throttle", run: e.federatedThrottle},
		{name: "assert", run: e.federatedAssert},
		{name: "resolve", run: e.federatedResolve},
		{name: "issue", run: e.federatedIssue},
	}
}

// LoginWithFederatedIdentity starts a session from a provider access
// token. Accounts seen for the first time are created verified and
// without a password.
func (e *Engine) LoginWithFederatedIdentity(ctx context.Context, accessToken string) (TokenPair, error) {
	if e == nil || e.sessions == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if e.verifier == nil {
		return TokenPair{}, e.fail(ctx, "federated_login", ErrConfig)
	}
	if accessToken == "" {
		return TokenPair{}, validationError("accessToken should not be empty")
	}

	state := &federatedLogin{accessToken: accessToken}
	for _, step := range e.federatedChain() {
		if err := step.run(ctx, state); err != nil {
			userID := ""
			if state.account != nil {
				userID = state.account.ID
			}
			e.metricInc(MetricFederatedLoginFailure)
			e.emitAudit(ctx, AuditFederatedLogin, false, userID, err, map[string]string{"step": step.name})
			return TokenPair{}, e.fail(ctx, "federated_login", err)
		}
	}

	e.metricInc(MetricFederatedLoginSuccess)
	e.emitAudit(ctx, AuditFederatedLogin, true, state.account.ID, nil, nil)
	return state.pair, nil
}

func (e *Engine) federatedThrottle(ctx context.Context, st *federatedLogin) error {
	attempt, err := e.checkAttempt(ctx, rate.PurposeLogin, e.config.Limits.Login)
	if err != nil {
		return err
	}
	st.attempt = attempt
	return nil
}

func (e *Engine) federatedAssert(ctx context.Context, st *federatedLogin) error {
	profile, err := e.verifier.Verify(ctx, st.accessToken)
	if err == nil && profile.Email == "" {
		err = ErrFederatedTokenInvalid
	}
	e.settle(ctx, st.attempt, err)
	if err != nil {
		return err
	}
	st.profile = profile
	return nil
}

func (e *Engine) federatedResolve(ctx context.Context, st *federatedLogin) error {
	account, err := e.resolver.FromFederatedProfile(ctx, identity.Profile{
		Email:      st.profile.Email,
		GivenName:  st.profile.GivenName,
		FamilyName: st.profile.FamilyName,
	})
	if err != nil {
		return err
	}
	st.account = account
	return nil
}

func (e *Engine) federatedIssue(ctx context.Context, st *federatedLogin) error {
	pair, err := e.sessions.IssueSession(ctx, principalOfAccount(st.account), fingerprintFromContext(ctx))
	if err != nil {
		return err
	}
	e.metricInc(MetricSessionCreated)
	st.pair = TokenPair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	return nil
}
