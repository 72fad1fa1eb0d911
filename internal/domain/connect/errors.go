package connect

import "errors"

var (
	// ErrProviderNotFound signals an unknown provider id.
	ErrProviderNotFound = errors.New("connect: provider not found")
	// ErrCapabilityNotFound signals an unknown capability id for a provider.
	ErrCapabilityNotFound = errors.New("connect: capability not found")
	// ErrTriggerNotFound signals an unknown trigger id for a provider.
	ErrTriggerNotFound = errors.New("connect: trigger not found")
	// ErrOAuthUnsupported indicates the provider has no authorization URL hook.
	ErrOAuthUnsupported = errors.New("connect: provider does not support oauth")
	// ErrCallbackUnsupported indicates the provider has no callback exchange hook.
	ErrCallbackUnsupported = errors.New("connect: provider does not support callbacks")
	// ErrInvalidState indicates an unknown or already-consumed state token.
	ErrInvalidState = errors.New("connect: invalid state")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("connect: invalid request")
	// ErrExchangeFailed indicates the provider rejected the code or the
	// exchange call failed.
	ErrExchangeFailed = errors.New("connect: callback exchange failed")
	// ErrConnectionNotFound signals no active connection for org+provider.
	ErrConnectionNotFound = errors.New("connect: connection not found")
	// ErrUnauthorized signals missing or invalid caller identity.
	ErrUnauthorized = errors.New("connect: unauthorized")
)
