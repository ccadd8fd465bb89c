// Package all registers every provider variant with a single import:
//
//	import _ "github.com/AltairaLabs/voicebridge/providers/all"
//
// Importing it makes the variants available to providers.New by name.
package all

import (
	// Register the Amazon Nova Sonic variant
	_ "github.com/AltairaLabs/voicebridge/providers/nova"

	// Register the OpenAI Realtime variant
	_ "github.com/AltairaLabs/voicebridge/providers/openai"
)
