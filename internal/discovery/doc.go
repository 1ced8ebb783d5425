// Package discovery finds Asphodel TCP devices on the local network and
// publishes the emulator so that it can be found.
//
// Two mechanisms are supported:
//
//   - UDP inquiry: Inquirer sends "asphodel\x00" to the discovery multicast
//     group (224.0.6.150:5760) and the broadcast address, then decodes the
//     advertisement datagrams devices send back.
//   - mDNS: Publish registers the emulator as an _asphodel._tcp service with
//     its serial number, board and user tags in TXT records; Scanner browses
//     for such services.
//
// # Usage Example
//
//	devices, err := discovery.NewInquirer().Inquire(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d)
//	}
package discovery
