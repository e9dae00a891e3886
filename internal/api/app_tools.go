package api

import (
	"context"

	"github.com/ncmcp/ncclient/carddav"
	"github.com/ncmcp/ncclient/deck"
	"github.com/ncmcp/ncclient/tables"
)

type contactRef struct {
	AddressBook string `json:"addressbook"`
	UID         string `json:"uid"`
}

func (s *Server) registerContactTools() {
	s.register("addressbooks_list", bind(func(ctx context.Context, _ struct{}) (any, error) {
		return s.nc.Contacts.ListAddressBooks(ctx)
	}))
	s.register("addressbook_create", bind(func(ctx context.Context, a struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}) (any, error) {
		if err := s.nc.Contacts.CreateAddressBook(ctx, a.Name, a.DisplayName); err != nil {
			return nil, err
		}
		return map[string]string{"created": a.Name}, nil
	}))
	s.register("addressbook_delete", bind(func(ctx context.Context, a struct {
		Name string `json:"name"`
	}) (any, error) {
		if err := s.nc.Contacts.DeleteAddressBook(ctx, a.Name); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": a.Name}, nil
	}))
	s.register("contacts_list", bind(func(ctx context.Context, a struct {
		AddressBook string `json:"addressbook"`
	}) (any, error) {
		return s.nc.Contacts.ListContacts(ctx, a.AddressBook)
	}))
	s.register("contact_get", bind(func(ctx context.Context, a contactRef) (any, error) {
		return s.nc.Contacts.GetContact(ctx, a.AddressBook, a.UID)
	}))
	s.register("contact_create", bind(func(ctx context.Context, a struct {
		AddressBook string `json:"addressbook"`
		carddav.ContactFields
	}) (any, error) {
		return s.nc.Contacts.CreateContact(ctx, a.AddressBook, a.ContactFields)
	}))
	s.register("contact_update", bind(func(ctx context.Context, a struct {
		contactRef
		carddav.ContactPatch
	}) (any, error) {
		return s.nc.Contacts.UpdateContact(ctx, a.AddressBook, a.UID, a.ContactPatch)
	}))
	s.register("contact_delete", bind(func(ctx context.Context, a struct {
		contactRef
		ETag string `json:"etag"`
	}) (any, error) {
		if err := s.nc.Contacts.DeleteContact(ctx, a.AddressBook, a.UID, a.ETag); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": a.UID}, nil
	}))
}

type tableRef struct {
	TableID int64 `json:"table_id"`
}

type rowRef struct {
	RowID int64 `json:"row_id"`
}

func (s *Server) registerTableTools() {
	s.register("tables_list", bind(func(ctx context.Context, _ struct{}) (any, error) {
		return s.nc.Tables.ListTables(ctx)
	}))
	s.register("table_schema", bind(func(ctx context.Context, a tableRef) (any, error) {
		return s.nc.Tables.Schema(ctx, a.TableID)
	}))
	s.register("table_rows", bind(func(ctx context.Context, a struct {
		tableRef
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}) (any, error) {
		schema, err := s.nc.Tables.Schema(ctx, a.TableID)
		if err != nil {
			return nil, err
		}
		rows, err := s.nc.Tables.Rows(ctx, a.TableID, a.Limit, a.Offset)
		if err != nil {
			return nil, err
		}
		return tables.TransformRows(rows, schema.Columns), nil
	}))
	s.register("table_row_create", bind(func(ctx context.Context, a struct {
		tableRef
		Data map[int64]any `json:"data"`
	}) (any, error) {
		if len(a.Data) == 0 {
			return nil, invalidArgs("data is required")
		}
		return s.nc.Tables.CreateRow(ctx, a.TableID, a.Data)
	}))
	s.register("table_row_update", bind(func(ctx context.Context, a struct {
		rowRef
		Data map[int64]any `json:"data"`
	}) (any, error) {
		if len(a.Data) == 0 {
			return nil, invalidArgs("data is required")
		}
		return s.nc.Tables.UpdateRow(ctx, a.RowID, a.Data)
	}))
	s.register("table_row_delete", bind(func(ctx context.Context, a rowRef) (any, error) {
		if err := s.nc.Tables.DeleteRow(ctx, a.RowID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": a.RowID}, nil
	}))
}

type boardRef struct {
	BoardID int64 `json:"board_id"`
}

type stackRef struct {
	BoardID int64 `json:"board_id"`
	StackID int64 `json:"stack_id"`
}

type cardRef struct {
	BoardID int64 `json:"board_id"`
	StackID int64 `json:"stack_id"`
	CardID  int64 `json:"card_id"`
}

func (s *Server) registerDeckTools() {
	s.register("deck_boards", bind(func(ctx context.Context, a struct {
		Details bool `json:"details"`
	}) (any, error) {
		return s.nc.Deck.ListBoards(ctx, a.Details)
	}))
	s.register("deck_board_get", bind(func(ctx context.Context, a boardRef) (any, error) {
		return s.nc.Deck.GetBoard(ctx, a.BoardID)
	}))
	s.register("deck_board_create", bind(func(ctx context.Context, a struct {
		Title string `json:"title"`
		Color string `json:"color"`
	}) (any, error) {
		return s.nc.Deck.CreateBoard(ctx, a.Title, a.Color)
	}))
	s.register("deck_board_update", bind(func(ctx context.Context, a struct {
		boardRef
		deck.BoardPatch
	}) (any, error) {
		return s.nc.Deck.UpdateBoard(ctx, a.BoardID, a.BoardPatch)
	}))
	s.register("deck_board_delete", bind(func(ctx context.Context, a boardRef) (any, error) {
		if err := s.nc.Deck.DeleteBoard(ctx, a.BoardID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": a.BoardID}, nil
	}))
	s.register("deck_stacks", bind(func(ctx context.Context, a boardRef) (any, error) {
		return s.nc.Deck.ListStacks(ctx, a.BoardID)
	}))
	s.register("deck_stack_create", bind(func(ctx context.Context, a struct {
		boardRef
		Title string `json:"title"`
		Order int    `json:"order"`
	}) (any, error) {
		return s.nc.Deck.CreateStack(ctx, a.BoardID, a.Title, a.Order)
	}))
	s.register("deck_stack_delete", bind(func(ctx context.Context, a stackRef) (any, error) {
		if err := s.nc.Deck.DeleteStack(ctx, a.BoardID, a.StackID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": a.StackID}, nil
	}))
	s.register("deck_card_get", bind(func(ctx context.Context, a cardRef) (any, error) {
		return s.nc.Deck.GetCard(ctx, a.BoardID, a.StackID, a.CardID)
	}))
	s.register("deck_card_create", bind(func(ctx context.Context, a struct {
		stackRef
		deck.CardSpec
	}) (any, error) {
		return s.nc.Deck.CreateCard(ctx, a.BoardID, a.StackID, a.CardSpec)
	}))
	s.register("deck_card_update", bind(func(ctx context.Context, a struct {
		cardRef
		deck.CardPatch
	}) (any, error) {
		return s.nc.Deck.UpdateCard(ctx, a.BoardID, a.StackID, a.CardID, a.CardPatch)
	}))
	s.register("deck_card_delete", bind(func(ctx context.Context, a cardRef) (any, error) {
		if err := s.nc.Deck.DeleteCard(ctx, a.BoardID, a.StackID, a.CardID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": a.CardID}, nil
	}))
}
