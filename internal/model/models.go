package model

// AllModels 用于 AutoMigrate
var AllModels = []interface{}{
	&Document{},
	&DocumentChunk{},
	&ChatSession{},
	&ChatMessage{},
	&UserStats{},
}
