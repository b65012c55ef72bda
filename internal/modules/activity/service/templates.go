package activity

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"gorm.io/datatypes"
)

func newActivity(userID uuid.UUID, t entity.ActivityType, title, description string) *entity.UserActivity {
	return &entity.UserActivity{
		UserID:      userID,
		Type:        t,
		Title:       title,
		Description: description,
		Metadata:    datatypes.JSONMap{},
	}
}

func withListing(a *entity.UserActivity, l *entity.BottleListing) *entity.UserActivity {
	id := l.ID
	a.ListingID = &id
	a.Metadata["listing_title"] = l.Title
	a.Metadata["bottle_count"] = l.BottleCount
	return a
}

func withRequest(a *entity.UserActivity, r *entity.PickupRequest) *entity.UserActivity {
	id := r.ID
	a.PickupRequestID = &id
	return a
}

func ListingCreated(l *entity.BottleListing) *entity.UserActivity {
	a := newActivity(l.OwnerID, entity.ActivityListingCreated,
		"Listing created",
		fmt.Sprintf("Your listing %q with %d bottles is now open for pickup.", l.Title, l.BottleCount))
	return withListing(a, l)
}

func ListingCancelled(l *entity.BottleListing, userID uuid.UUID) *entity.UserActivity {
	desc := fmt.Sprintf("The listing %q was cancelled by its owner.", l.Title)
	if userID == l.OwnerID {
		desc = fmt.Sprintf("You cancelled your listing %q.", l.Title)
	}
	return withListing(newActivity(userID, entity.ActivityListingCancelled, "Listing cancelled", desc), l)
}

func PickupRequestSent(l *entity.BottleListing, r *entity.PickupRequest) *entity.UserActivity {
	a := newActivity(r.VolunteerID, entity.ActivityPickupRequestSent,
		"Pickup request sent",
		fmt.Sprintf("You offered to pick up %d bottles from %q.", l.BottleCount, l.Title))
	return withRequest(withListing(a, l), r)
}

func PickupRequestReceived(l *entity.BottleListing, r *entity.PickupRequest) *entity.UserActivity {
	a := newActivity(l.OwnerID, entity.ActivityPickupRequestReceived,
		"New pickup request",
		fmt.Sprintf("A volunteer wants to pick up your listing %q.", l.Title))
	a.Metadata["volunteer_id"] = r.VolunteerID.String()
	return withRequest(withListing(a, l), r)
}

func PickupRequestAccepted(l *entity.BottleListing, r *entity.PickupRequest) *entity.UserActivity {
	a := newActivity(r.VolunteerID, entity.ActivityPickupRequestAccepted,
		"Pickup request accepted",
		fmt.Sprintf("Your pickup request for %q was accepted.", l.Title))
	return withRequest(withListing(a, l), r)
}

func PickupRequestAcceptedByOwner(l *entity.BottleListing, r *entity.PickupRequest) *entity.UserActivity {
	a := newActivity(l.OwnerID, entity.ActivityPickupRequestAcceptedByOwner,
		"You accepted a pickup request",
		fmt.Sprintf("Your listing %q is now claimed.", l.Title))
	a.Metadata["volunteer_id"] = r.VolunteerID.String()
	return withRequest(withListing(a, l), r)
}

func PickupRequestRejected(l *entity.BottleListing, r *entity.PickupRequest) *entity.UserActivity {
	a := newActivity(r.VolunteerID, entity.ActivityPickupRequestRejected,
		"Pickup request declined",
		fmt.Sprintf("Your pickup request for %q was declined.", l.Title))
	return withRequest(withListing(a, l), r)
}

func PickupRequestCancelled(l *entity.BottleListing, r *entity.PickupRequest, userID uuid.UUID) *entity.UserActivity {
	desc := fmt.Sprintf("The volunteer cancelled the pickup of %q.", l.Title)
	if userID == r.VolunteerID {
		desc = fmt.Sprintf("You cancelled your pickup request for %q.", l.Title)
	}
	a := newActivity(userID, entity.ActivityPickupRequestCancelled, "Pickup request cancelled", desc)
	return withRequest(withListing(a, l), r)
}

func PickupCompleted(l *entity.BottleListing, r *entity.PickupRequest, userID uuid.UUID) *entity.UserActivity {
	a := newActivity(userID, entity.ActivityPickupCompleted,
		"Pickup completed",
		fmt.Sprintf("The pickup of %q is complete.", l.Title))
	return withRequest(withListing(a, l), r)
}

func TransactionCompleted(l *entity.BottleListing, t *entity.Transaction, userID uuid.UUID, share string) *entity.UserActivity {
	a := newActivity(userID, entity.ActivityTransactionCompleted,
		"Refund settled",
		fmt.Sprintf("Your share of the %s refund for %q is %s.", t.TotalRefund.StringFixed(2), l.Title, share))
	id, reqID := t.ID, t.PickupRequestID
	a.TransactionID = &id
	a.PickupRequestID = &reqID
	a.Metadata["total_refund"] = t.TotalRefund.StringFixed(2)
	a.Metadata["share"] = share
	return withListing(a, l)
}

func RatingReceived(r *entity.Rating) *entity.UserActivity {
	a := newActivity(r.RatedUserID, entity.ActivityRatingReceived,
		"New rating",
		fmt.Sprintf("You received a %d star rating.", r.Value))
	id, txID := r.ID, r.TransactionID
	a.RatingID = &id
	a.TransactionID = &txID
	a.Metadata["value"] = r.Value
	return a
}

func RatingGiven(r *entity.Rating) *entity.UserActivity {
	a := newActivity(r.RaterID, entity.ActivityRatingGiven,
		"Rating submitted",
		fmt.Sprintf("You gave a %d star rating.", r.Value))
	id, txID := r.ID, r.TransactionID
	a.RatingID = &id
	a.TransactionID = &txID
	a.Metadata["value"] = r.Value
	return a
}
