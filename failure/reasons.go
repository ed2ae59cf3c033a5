package failure

import (
	"github.com/xraph/dispatch/id"
	"github.com/xraph/dispatch/types"
)

// DefaultReasons returns the standard failure reason catalog. Callers
// typically pass this to Store.SeedReasons at setup; deployments can
// seed their own catalog instead.
func DefaultReasons() []*Reason {
	mk := func(key, en, fr string, sort int) *Reason {
		return &Reason{
			Entity:    types.NewEntity(),
			ID:        id.NewReasonID(),
			Key:       key,
			LabelEN:   en,
			LabelFR:   fr,
			Active:    true,
			SortOrder: sort,
		}
	}

	return []*Reason{
		mk("client_unreachable", "Client could not be reached", "Client injoignable", 10),
		mk("client_refused", "Client refused the delivery", "Client a refusé la livraison", 20),
		mk("wrong_address", "Delivery address was wrong or not found", "Adresse de livraison erronée ou introuvable", 30),
		mk("damaged_in_transit", "Goods damaged in transit", "Marchandise endommagée pendant le transport", 40),
		mk("lost_in_transit", "Goods lost in transit", "Marchandise perdue pendant le transport", 50),
		mk("wrong_item", "Wrong item was sent", "Mauvais article envoyé", 60),
		mk("defective_item", "Item was defective", "Article défectueux", 70),
		mk("other", "Other", "Autre", 100),
	}
}
