/*
Package mailbox implements simforge's named rendezvous mailboxes (C2):
the only way actors exchange data during a run.

A mailbox is addressed purely by name — any actor that knows the name can
Put to it or Get from it, there is no connection setup. Delivery preserves
FIFO order per sender but gives no ordering guarantee across senders,
matching §3's mailbox contract. Get and GetWithTimeout are suspension
points: they release the clock's run turn (via pkg/clock.SuspendUntil)
while waiting, so other actors run during the wait instead of the
simulation busy-spinning.

Transport is github.com/ThreeDotsLabs/watermill's in-process gochannel
Pub/Sub, the same publish/subscribe library webitel-im-delivery-service
wires to AMQP — here backing purely in-memory topics, one per mailbox
name, which is exactly gochannel's intended use. A message's byte size
travels with it in the Envelope's SizeBytes field; neither this package
nor any other in simforge charges that size against a network link.
*/
package mailbox
