package ledger_test

import (
	"errors"
	"sync"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/common"
	"github.com/olachain/ola/src/state"
	"github.com/olachain/ola/src/store"
	"github.com/olachain/ola/src/validation"
	"github.com/sirupsen/logrus"

	. "github.com/olachain/ola/src/ledger"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newLedger(b *chainBuilder, s store.Store, cacheSize int) *Ledger {
	logger := logrus.New()
	logger.Out = GinkgoWriter
	logger.Level = logrus.DebugLevel

	l, err := New(b.engine, s, cacheSize, logger.WithField("prefix", "ledger"))
	Expect(err).ShouldNot(HaveOccurred())
	Expect(l.Bootstrap()).To(Succeed())
	return l
}

type failingStore struct {
	store.Store
	failBlocks bool
}

func (s *failingStore) SetBlock(block *chain.Block) error {
	if s.failBlocks {
		return errors.New("disk full")
	}
	return s.Store.SetBlock(block)
}

func hashOf(s *state.State) string {
	h, err := s.Hash()
	Expect(err).ShouldNot(HaveOccurred())
	return common.EncodeToString(h)
}

var _ = Describe("Ledger", func() {

	Context("with the height fork-choice rule", func() {
		var (
			b       *chainBuilder
			ledger  *Ledger
			genesis *chain.Block
		)

		BeforeEach(func() {
			b = newChainBuilder(chain.ForkChoiceHeight, 1, 1)
			ledger = newLedger(b, store.NewInmemStore(100), 100)
			genesis = ledger.Genesis()
		})

		It("should start at genesis", func() {
			head := ledger.CurrentHead()
			Expect(head.Height).To(Equal(uint64(0)))
			Expect(head.Hash).To(Equal(genesis.Hex()))
			Expect(ledger.StateAt(address(b.alice)).Balance).To(Equal(uint64(1000)))
		})

		It("should apply a block that extends the head", func() {
			block := b.extend(genesis, 0, 0, b.transfer(genesis, 100))

			res, err := ledger.ApplyBlock(block)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(Extended))
			Expect(res.Applied).To(HaveLen(1))

			head := ledger.CurrentHead()
			Expect(head.Height).To(Equal(uint64(1)))
			Expect(head.Hash).To(Equal(block.Hex()))
			Expect(ledger.StateAt(address(b.alice)).Balance).To(Equal(uint64(899)))
			Expect(ledger.StateAt(address(b.bob)).Balance).To(Equal(uint64(100)))
			Expect(ledger.StateAt(address(b.validators[0])).Balance).To(Equal(uint64(1)))
		})

		It("should refuse to apply a block that does not extend the head", func() {
			first := b.extend(genesis, 0, 0)
			sibling := b.extend(genesis, 1, 1)

			_, err := ledger.ApplyBlock(first)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = ledger.ApplyBlock(sibling)
			Expect(validation.Is(err, validation.Linkage)).To(BeTrue())
			Expect(ledger.CurrentHead().Hash).To(Equal(first.Hex()))
		})

		It("should reject a block with an unknown parent and leave the head", func() {
			blocks := b.branch(genesis, 2, 0, 0)

			_, err := ledger.AddBlock(blocks[1])
			Expect(validation.Is(err, validation.Linkage)).To(BeTrue())
			Expect(ledger.CurrentHead().Hash).To(Equal(genesis.Hex()))
			Expect(ledger.HasBlock(blocks[1].Hex())).To(BeFalse())
		})

		It("should treat a known block as a no-op", func() {
			block := b.extend(genesis, 0, 0, b.transfer(genesis, 10))

			_, err := ledger.AddBlock(block)
			Expect(err).ShouldNot(HaveOccurred())
			before := hashOf(ledger.HeadState())

			_, err = ledger.AddBlock(block)
			Expect(err).To(Equal(ErrKnownBlock))
			Expect(ledger.CurrentHead().Height).To(Equal(uint64(1)))
			Expect(hashOf(ledger.HeadState())).To(Equal(before))
		})

		It("should never record an invalid block", func() {
			block := b.extend(genesis, 0, 0, b.transfer(genesis, 10))
			block.Header.StateHash = genesis.Header.StateHash
			Expect(block.Sign(b.validators[0])).To(Succeed())

			_, err := ledger.AddBlock(block)
			Expect(validation.Is(err, validation.StateMismatch)).To(BeTrue())
			Expect(ledger.HasBlock(block.Hex())).To(BeFalse())
			Expect(ledger.CurrentHead().Hash).To(Equal(genesis.Hex()))
			Expect(ledger.StateAt(address(b.alice)).Balance).To(Equal(uint64(1000)))
		})

		It("should switch to a longer fork atomically", func() {
			mainTx := b.transfer(genesis, 300)
			main1 := b.extend(genesis, 0, 0, mainTx)
			main2 := b.extend(main1, 0, 0)

			fork := b.branch(genesis, 3, 1, 7)

			for _, block := range []*chain.Block{main1, main2} {
				_, err := ledger.AddBlock(block)
				Expect(err).ShouldNot(HaveOccurred())
			}

			res, err := ledger.AddBlock(fork[0])
			Expect(err).ShouldNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(SideChain))

			res, err = ledger.AddBlock(fork[1])
			Expect(err).ShouldNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(SideChain))
			Expect(ledger.CurrentHead().Hash).To(Equal(main2.Hex()))

			res, err = ledger.AddBlock(fork[2])
			Expect(err).ShouldNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(Reorganized))
			Expect(res.Reverted).To(HaveLen(2))
			Expect(res.Reverted[0].Hex()).To(Equal(main1.Hex()))
			Expect(res.Reverted[0].Transactions[0].Hex()).To(Equal(mainTx.Hex()))
			Expect(res.Applied).To(HaveLen(3))
			Expect(res.Applied[0].Hex()).To(Equal(fork[0].Hex()))

			head := ledger.CurrentHead()
			Expect(head.Height).To(Equal(uint64(3)))
			Expect(head.Hash).To(Equal(fork[2].Hex()))
			for i, block := range fork {
				canonical, ok := ledger.BlockAt(uint64(i + 1))
				Expect(ok).To(BeTrue())
				Expect(canonical.Hex()).To(Equal(block.Hex()))
			}
			Expect(ledger.IsCanonical(main1.Hex())).To(BeFalse())
			Expect(ledger.HasBlock(main1.Hex())).To(BeTrue())

			// the state is the fork's state, the reverted payment is gone
			Expect(hashOf(ledger.HeadState())).To(Equal(hashOf(b.stateOf(fork[2]))))
			Expect(ledger.StateAt(address(b.bob)).Balance).To(Equal(uint64(0)))
		})

		It("should keep the incumbent head on a tie", func() {
			main := b.extend(genesis, 0, 0)
			rivalTx := b.transfer(genesis, 40)
			rival := b.extend(genesis, 1, 1, rivalTx)

			_, err := ledger.AddBlock(main)
			Expect(err).ShouldNot(HaveOccurred())

			res, err := ledger.AddBlock(rival)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(SideChain))
			Expect(res.HeadChanged()).To(BeFalse())
			Expect(res.Applied).To(BeEmpty())
			Expect(ledger.CurrentHead().Hash).To(Equal(main.Hex()))
			Expect(ledger.HasBlock(rival.Hex())).To(BeTrue())
			Expect(ledger.IsCanonical(rival.Hex())).To(BeFalse())

			// the rival's payment is not part of the head state
			Expect(ledger.StateAt(address(b.alice))).To(Equal(state.Account{Balance: 1000}))
			Expect(ledger.StateAt(address(b.bob)).Balance).To(Equal(uint64(0)))
			Expect(hashOf(ledger.HeadState())).To(Equal(hashOf(b.stateOf(main))))
		})

		It("should leave the head alone when the block cannot be stored", func() {
			b = newChainBuilder(chain.ForkChoiceHeight, 1)
			s := &failingStore{Store: store.NewInmemStore(100)}
			ledger = newLedger(b, s, 100)
			genesis = ledger.Genesis()

			b1 := b.extend(genesis, 0, 0, b.transfer(genesis, 5))
			s.failBlocks = true

			_, err := ledger.AddBlock(b1)
			Expect(err).Should(HaveOccurred())
			Expect(ledger.HasBlock(b1.Hex())).To(BeFalse())
			Expect(ledger.CurrentHead().Hash).To(Equal(genesis.Hex()))

			snap, err := s.LoadState()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(snap.Head).To(Equal(genesis.Hex()))

			// once the store recovers the block is accepted and a restart
			// finds it
			s.failBlocks = false
			_, err = ledger.AddBlock(b1)
			Expect(err).ShouldNot(HaveOccurred())

			restored := newLedger(b, s, 100)
			Expect(restored.CurrentHead().Hash).To(Equal(b1.Hex()))
		})

		It("should expose the engine of its genesis", func() {
			Expect(ledger.Engine()).To(BeIdenticalTo(b.engine))
			Expect(ledger.Engine().Genesis()).To(BeIdenticalTo(b.genesis))
		})

		It("should replay fork states that fell out of the cache", func() {
			b = newChainBuilder(chain.ForkChoiceHeight, 1, 1)
			ledger = newLedger(b, store.NewInmemStore(100), 2)
			genesis = ledger.Genesis()

			main := b.branch(genesis, 6, 0, 0)
			fork := b.branch(main[1], 5, 1, 3)

			for _, block := range append(main, fork...) {
				_, err := ledger.AddBlock(block)
				Expect(err).ShouldNot(HaveOccurred())
			}

			Expect(ledger.CurrentHead().Hash).To(Equal(fork[4].Hex()))
			Expect(ledger.CurrentHead().Height).To(Equal(uint64(7)))
		})

		It("should return canonical ranges", func() {
			blocks := b.branch(genesis, 5, 0, 0)
			for _, block := range blocks {
				_, err := ledger.ApplyBlock(block)
				Expect(err).ShouldNot(HaveOccurred())
			}

			res := ledger.CanonicalFrom(2, 2)
			Expect(res).To(HaveLen(2))
			Expect(res[0].Hex()).To(Equal(blocks[1].Hex()))
			Expect(res[1].Hex()).To(Equal(blocks[2].Hex()))

			Expect(ledger.CanonicalFrom(4, 10)).To(HaveLen(2))
			Expect(ledger.CanonicalFrom(9, 10)).To(BeEmpty())
		})

		It("should give readers a consistent view while blocks are added", func() {
			blocks := b.branch(genesis, 20, 0, 0)

			var wg sync.WaitGroup
			stop := make(chan struct{})
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for {
						select {
						case <-stop:
							return
						default:
						}
						head := ledger.CurrentHead()
						block, ok := ledger.BlockAt(head.Height)
						Expect(ok).To(BeTrue())
						if block.Height() != head.Height {
							Fail("canonical index and head disagree")
						}
					}
				}()
			}

			for _, block := range blocks {
				_, err := ledger.AddBlock(block)
				Expect(err).ShouldNot(HaveOccurred())
			}
			close(stop)
			wg.Wait()

			Expect(ledger.CurrentHead().Height).To(Equal(uint64(20)))
		})
	})

	Context("with the weight fork-choice rule", func() {
		It("should prefer the heavier fork over the longer one", func() {
			b := newChainBuilder(chain.ForkChoiceWeight, 1, 5)
			ledger := newLedger(b, store.NewInmemStore(100), 100)
			genesis := ledger.Genesis()

			light := b.branch(genesis, 2, 0, 0)
			heavy := b.extend(genesis, 1, 9)

			for _, block := range light {
				_, err := ledger.AddBlock(block)
				Expect(err).ShouldNot(HaveOccurred())
			}
			Expect(ledger.CurrentHead().Score).To(Equal(uint64(2)))

			res, err := ledger.AddBlock(heavy)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(Reorganized))
			Expect(res.Reverted).To(HaveLen(2))

			head := ledger.CurrentHead()
			Expect(head.Hash).To(Equal(heavy.Hex()))
			Expect(head.Height).To(Equal(uint64(1)))
			Expect(head.Score).To(Equal(uint64(5)))
		})
	})

	Context("when bootstrapping from a store", func() {
		It("should restore the canonical chain", func() {
			b := newChainBuilder(chain.ForkChoiceHeight, 1)
			s := store.NewInmemStore(100)
			ledger := newLedger(b, s, 100)
			genesis := ledger.Genesis()

			b1 := b.extend(genesis, 0, 0, b.transfer(genesis, 5))
			b2 := b.extend(b1, 0, 0, b.transfer(b1, 6))
			for _, block := range []*chain.Block{b1, b2} {
				_, err := ledger.AddBlock(block)
				Expect(err).ShouldNot(HaveOccurred())
			}

			restored := newLedger(b, s, 100)
			Expect(restored.CurrentHead()).To(Equal(ledger.CurrentHead()))
			Expect(hashOf(restored.HeadState())).To(Equal(hashOf(ledger.HeadState())))
		})

		It("should detect a corrupted snapshot", func() {
			b := newChainBuilder(chain.ForkChoiceHeight, 1)
			s := store.NewInmemStore(100)
			ledger := newLedger(b, s, 100)

			block := b.extend(ledger.Genesis(), 0, 0, b.transfer(ledger.Genesis(), 5))
			_, err := ledger.AddBlock(block)
			Expect(err).ShouldNot(HaveOccurred())

			snap, err := s.LoadState()
			Expect(err).ShouldNot(HaveOccurred())
			snap.Accounts[address(b.bob)] = state.Account{Balance: 1000000}
			Expect(s.Persist(snap)).To(Succeed())

			restored, err := New(b.engine, s, 100, logrus.NewEntry(logrus.New()))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(restored.Bootstrap()).ShouldNot(Succeed())
		})
	})
})
