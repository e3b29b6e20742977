package model

import "gorm.io/gorm"

var allModels = []any{
	&Account{},
	&Trainer{},
	&TrainerBrotmon{},
	&BrotmonMove{},
	&Battle{},
	&BattleAction{},
	&BattleLog{},
	&AuditLog{},
}

// AutoMigrate creates or updates all tables in the given database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(allModels...)
}
