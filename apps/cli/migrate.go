package main

import (
	"context"

	"github.com/trezcool/mashovsend/storage/database"
)

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	db, err := cli.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.Migrate(db, args[0], args[1:]...)
}
