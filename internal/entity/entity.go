package entity

// Models lists every table in dependency order for AutoMigrate.
func Models() []any {
	return []any{
		&User{},
		&Profile{},
		&BottleListing{},
		&PickupRequest{},
		&Transaction{},
		&Rating{},
		&Message{},
		&UserActivity{},
		&DeviceToken{},
	}
}
