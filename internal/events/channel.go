// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package events

import (
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/recdeploy/internal/logging"
)

// NewChannelPublisher publishes to an in-process Go channel pub/sub.
// The returned GoChannel can be used to subscribe to the same topic.
func NewChannelPublisher(topic string) (*WatermillPublisher, *gochannel.GoChannel) {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logging.NewWatermillAdapter())
	return NewWatermillPublisher(ch, topic), ch
}
