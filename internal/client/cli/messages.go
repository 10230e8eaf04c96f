package cli

import (
	"errors"

	"github.com/dmitrijs2005/revsearch/internal/client/client"
	"github.com/dmitrijs2005/revsearch/internal/client/orchestrator"
)

const (
	msgNetwork     = "No Internet connection. Please check your network and try again."
	msgNotEntitled = "Searching requires a subscription. Pick a plan and run `revsearch subscribe <plan>`:"
	msgCancelled   = "Search cancelled."
	msgGeneric     = "Something went wrong. Please start the search again."
	msgNoHistory   = "No matches found\nTry another angle or upload a different photo."
	msgNotSaved    = "Warning: the result could not be saved to history; it is shown once below."
)

type messageKind int

const (
	kindGeneric messageKind = iota
	kindNetwork
	kindNotEntitled
	kindCancelled
)

// classify decides how a failure is presented to the user.
func classify(err error) messageKind {
	switch {
	case errors.Is(err, orchestrator.ErrNotEntitled):
		return kindNotEntitled
	case errors.Is(err, client.ErrNetworkUnavailable):
		return kindNetwork
	case errors.Is(err, orchestrator.ErrCancelled):
		return kindCancelled
	}
	return kindGeneric
}

// UserMessage returns the text shown for err.
func UserMessage(err error) string {
	switch classify(err) {
	case kindNotEntitled:
		return msgNotEntitled
	case kindNetwork:
		return msgNetwork
	case kindCancelled:
		return msgCancelled
	}
	return msgGeneric
}
