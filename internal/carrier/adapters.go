package carrier

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/teakspice/storefront/internal/domain/order"
)

// The carrier returns the same data under different layouts depending on
// endpoint version and account settings. Each shape names one layout;
// lookups walk the shapes in order and take the first that has the field.

type shape struct {
	name   string
	prefix []string
}

func (s shape) path(field string) []string {
	return append(slices.Clone(s.prefix), field)
}

var awbShapes = []shape{
	{name: "response.data", prefix: []string{"response", "data"}},
	{name: "top-level"},
	{name: "awb_assign_status", prefix: []string{"awb_assign_status"}},
}

var courierListShapes = []shape{
	{name: "data", prefix: []string{"data"}},
	{name: "top-level"},
}

var errNoField = errors.New("field not present")

// lookup walks data along path and returns the raw value found there.
func lookup(data []byte, path ...string) (jx.Raw, bool) {
	cur := jx.Raw(data)
	for _, key := range path {
		d := jx.DecodeBytes(cur)
		if d.Next() != jx.Object {
			return nil, false
		}
		var (
			next  jx.Raw
			found bool
		)
		err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
			if found || string(k) != key {
				return d.Skip()
			}
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			next, found = raw, true
			return nil
		})
		if err != nil || !found {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// stringAt returns the string or number at path as a string.
func stringAt(data []byte, path ...string) (string, bool) {
	raw, ok := lookup(data, path...)
	if !ok {
		return "", false
	}
	s, err := decodeString(jx.DecodeBytes(raw))
	if err != nil {
		return "", false
	}
	return s, true
}

// decodeString accepts a string, a number or null. Other types decode as
// the empty string.
func decodeString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}

// decodeDecimal accepts a number, a numeric string or null.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := decodeString(d)
	if err != nil {
		return decimal.Zero, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func decodeInt(d *jx.Decoder) (int, error) {
	v, err := decodeDecimal(d)
	if err != nil {
		return 0, err
	}
	return int(v.IntPart()), nil
}

func parseToken(data []byte) (string, error) {
	tok, ok := stringAt(data, "token")
	if !ok || tok == "" {
		return "", errors.New("login response has no token")
	}
	return tok, nil
}

func parseAWB(data []byte) (*order.AWB, error) {
	for _, s := range awbShapes {
		code, ok := stringAt(data, s.path("awb_code")...)
		if !ok || code == "" {
			continue
		}
		awb := &order.AWB{Code: code}
		awb.CourierName, _ = stringAt(data, s.path("courier_name")...)
		if id, ok := stringAt(data, s.path("courier_company_id")...); ok {
			awb.CourierID, _ = strconv.Atoi(id)
		}
		return awb, nil
	}
	return nil, errors.Wrap(errNoField, "awb_code")
}

func parseCouriers(data []byte) ([]Courier, error) {
	for _, s := range courierListShapes {
		raw, ok := lookup(data, s.path("available_courier_companies")...)
		if !ok {
			continue
		}
		var out []Courier
		d := jx.DecodeBytes(raw)
		if d.Next() != jx.Array {
			return nil, nil
		}
		if err := d.Arr(func(d *jx.Decoder) error {
			c, err := decodeCourier(d)
			if err != nil {
				return err
			}
			out = append(out, c)
			return nil
		}); err != nil {
			return nil, errors.Wrap(err, "decode couriers")
		}
		return out, nil
	}
	return nil, nil
}

func decodeCourier(d *jx.Decoder) (Courier, error) {
	var c Courier
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "courier_company_id":
			c.ID, err = decodeInt(d)
		case "courier_name":
			c.Name, err = decodeString(d)
		case "rate":
			c.Rate, err = decodeDecimal(d)
		case "rating":
			var r decimal.Decimal
			r, err = decodeDecimal(d)
			c.Rating = r.InexactFloat64()
		case "estimated_delivery_days":
			c.EstimatedDays, err = decodeString(d)
		case "etd":
			c.ETD, err = decodeString(d)
		case "cod":
			var v int
			v, err = decodeInt(d)
			c.COD = v == 1
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}

func parseCreatedOrder(data []byte) (*order.CarrierOrder, error) {
	id, ok := stringAt(data, "order_id")
	if !ok || id == "" {
		return nil, errors.Wrap(errNoField, "order_id")
	}
	co := &order.CarrierOrder{OrderID: id}
	co.ShipmentID, _ = stringAt(data, "shipment_id")
	co.Status, _ = stringAt(data, "status")
	return co, nil
}

func parseLabel(data []byte) string {
	url, _ := stringAt(data, "label_url")
	return url
}

func parsePickup(data []byte) bool {
	v, ok := stringAt(data, "pickup_status")
	return ok && v == "1"
}

const trackingTimeLayout = "2006-01-02 15:04:05"

func parseTracking(data []byte) (*order.Tracking, error) {
	td, ok := lookup(data, "tracking_data")
	if !ok {
		return nil, errors.Wrap(errNoField, "tracking_data")
	}

	tr := &order.Tracking{}
	if raw, ok := lookup(td, "shipment_track"); ok {
		d := jx.DecodeBytes(raw)
		if d.Next() == jx.Array {
			first := true
			if err := d.Arr(func(d *jx.Decoder) error {
				if !first {
					return d.Skip()
				}
				first = false
				return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "current_status":
						tr.Status, err = decodeString(d)
					case "edd", "etd":
						var v string
						if v, err = decodeString(d); v != "" {
							tr.ETD = v
						}
					default:
						err = d.Skip()
					}
					return err
				})
			}); err != nil {
				return nil, errors.Wrap(err, "decode shipment_track")
			}
		}
	}

	if raw, ok := lookup(td, "shipment_track_activities"); ok {
		d := jx.DecodeBytes(raw)
		if d.Next() == jx.Array {
			if err := d.Arr(func(d *jx.Decoder) error {
				var ev order.TrackingEvent
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					switch string(key) {
					case "date":
						s, err := decodeString(d)
						if err == nil {
							ev.At, _ = time.Parse(trackingTimeLayout, s)
						}
						return err
					case "activity":
						s, err := decodeString(d)
						ev.Status = s
						return err
					case "location":
						s, err := decodeString(d)
						ev.Location = s
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				tr.Events = append(tr.Events, ev)
				return nil
			}); err != nil {
				return nil, errors.Wrap(err, "decode shipment_track_activities")
			}
		}
	}

	if tr.Status == "" && len(tr.Events) > 0 {
		tr.Status = tr.Events[0].Status
	}
	return tr, nil
}
